package sources

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/metrics"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct {
	name  string
	err   error
	calls int
}

func (f *failingSource) Name() string { return f.name }

func (f *failingSource) Search(context.Context, string, Args) ([]models.Contact, error) {
	f.calls++
	return nil, f.err
}

func (f *failingSource) FirstMatch(context.Context, string, Args) (*models.Contact, error) {
	f.calls++
	return nil, f.err
}

func (f *failingSource) List(context.Context, []string, Args) ([]models.Contact, error) {
	f.calls++
	return nil, f.err
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadAll isolates failures", func(t *testing.T) {
		m := metrics.NewNop()
		r := NewRegistry(Dependencies{Logger: quietLogger(), Metrics: m})

		good := csvConfig(writeFile(t, "people.csv", peopleCSV))
		missing := csvConfig(filepath.Join(t.TempDir(), "missing.csv"))
		missing.Name = "broken_csv"
		unknown := models.SourceConfig{Name: "mystery", Backend: "carrier-pigeon"}
		personal := models.SourceConfig{Name: "personal", Backend: BackendPersonal}

		loaded := r.LoadAll(ctx, []models.SourceConfig{missing, good, unknown, personal}, nil)
		require.Len(t, loaded, 1)
		assert.Contains(t, loaded, "my_csv")

		assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceLoadFailures.WithLabelValues(BackendCSV)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceLoadFailures.WithLabelValues("carrier-pigeon")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceLoadFailures.WithLabelValues(BackendPersonal)))
	})

	t.Run("LoadAll honors enabled backends", func(t *testing.T) {
		r := NewRegistry(Dependencies{Logger: quietLogger()})
		good := csvConfig(writeFile(t, "people.csv", peopleCSV))

		loaded := r.LoadAll(ctx, []models.SourceConfig{good}, []string{BackendLDAP})
		assert.Empty(t, loaded)

		loaded = r.LoadAll(ctx, []models.SourceConfig{good}, []string{BackendCSV})
		assert.Len(t, loaded, 1)
	})

	t.Run("Reload publishes a new generation", func(t *testing.T) {
		m := metrics.NewNop()
		r := NewRegistry(Dependencies{Logger: quietLogger(), Metrics: m})
		first := r.Current()
		assert.Equal(t, 0, first.Len())

		good := csvConfig(writeFile(t, "people.csv", peopleCSV))
		broken := models.SourceConfig{Name: "broken", Backend: BackendCSV}
		g := r.Reload(ctx, Snapshot{
			Sources:  []models.SourceConfig{good, broken},
			Displays: []models.Display{{Name: "default"}},
			Profiles: []models.Profile{{Name: "default", Display: "default"}},
		})

		assert.Same(t, g, r.Current())
		assert.Equal(t, uint64(1), g.Number)
		assert.True(t, g.Loaded("my_csv"))
		assert.False(t, g.Loaded("broken"))
		_, configured := g.Config("broken")
		assert.True(t, configured)
		assert.Equal(t, []string{"my_csv"}, g.Names())
		assert.Len(t, g.Configs(), 2)

		_, ok := g.Display("default")
		assert.True(t, ok)

		assert.Equal(t, 0, first.Len(), "earlier generations are never mutated")

		g2 := r.Reload(ctx, Snapshot{})
		assert.Equal(t, uint64(2), g2.Number)
		assert.Equal(t, 2.0, testutil.ToFloat64(m.RegistryGeneration))
		assert.Equal(t, 0.0, testutil.ToFloat64(m.LoadedSources))
	})

	t.Run("concurrent reloads and reads", func(t *testing.T) {
		r := NewRegistry(Dependencies{Logger: quietLogger()})
		good := csvConfig(writeFile(t, "people.csv", peopleCSV))

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				r.Reload(ctx, Snapshot{Sources: []models.SourceConfig{good}})
			}()
			go func() {
				defer wg.Done()
				g := r.Current()
				if g.Len() > 0 {
					_, ok := g.Source("my_csv")
					assert.True(t, ok)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, uint64(8), r.Current().Number)
	})

	t.Run("remote sources get a circuit breaker", func(t *testing.T) {
		r := NewRegistry(Dependencies{Logger: quietLogger()})
		cfg := models.SourceConfig{
			Name:    "wazo",
			Backend: BackendWazo,
			Confd:   models.ConfdConfig{URL: "http://127.0.0.1:1"},
		}
		loaded := r.LoadAll(ctx, []models.SourceConfig{cfg}, nil)
		require.Contains(t, loaded, "wazo")
		_, ok := loaded["wazo"].(*breakerSource)
		assert.True(t, ok)
		assert.Equal(t, "wazo", loaded["wazo"].Name())
	})
}

func TestGeneration(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(Dependencies{Logger: quietLogger()})

	a := csvConfig(writeFile(t, "a.csv", peopleCSV))
	a.Name = "a"
	b := csvConfig(writeFile(t, "b.csv", peopleCSV))
	b.Name = "b"

	g := r.Reload(ctx, Snapshot{
		Sources: []models.SourceConfig{a, b},
		Profiles: []models.Profile{
			{
				Name: "default",
				Services: map[string]models.ServiceConfig{
					models.ServiceLookup:  {Sources: []string{"b", "ghost", "a", "b"}},
					models.ServiceReverse: {Sources: []string{"a"}},
				},
			},
			{Name: "sales", Tenant: "t1"},
		},
	})

	t.Run("ForProfile keeps declared order and skips unknown names", func(t *testing.T) {
		p, err := g.Profile("t1", "default")
		require.NoError(t, err)

		srcs := g.ForProfile(p, models.ServiceLookup, "t1")
		require.Len(t, srcs, 2)
		assert.Equal(t, "b", srcs[0].Name())
		assert.Equal(t, "a", srcs[1].Name())

		assert.Empty(t, g.ForProfile(p, models.ServiceFavorites, "t1"))
	})

	t.Run("Profile is tenant scoped", func(t *testing.T) {
		_, err := g.Profile("t1", "sales")
		assert.NoError(t, err)

		_, err = g.Profile("t2", "sales")
		assert.ErrorIs(t, err, shared.ErrNoSuchProfile)

		_, err = g.Profile("t1", "nope")
		assert.ErrorIs(t, err, shared.ErrNoSuchProfile)

		_, err = g.Profile("", "sales")
		assert.ErrorIs(t, err, shared.ErrNoSuchProfile, "callers without a tenant only see global profiles")

		assert.Len(t, g.Profiles("t1"), 2)
		assert.Len(t, g.Profiles("t2"), 1)
		assert.Len(t, g.Profiles(""), 1)
		assert.Len(t, g.AllProfiles(), 2)
	})
}

func TestGenerationTenants(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(Dependencies{Logger: quietLogger()})

	global := csvConfig(writeFile(t, "global.csv", peopleCSV))
	global.Name = "global"
	mine := csvConfig(writeFile(t, "mine.csv", peopleCSV))
	mine.Name = "mine"
	mine.Tenant = "t1"
	theirs := csvConfig(writeFile(t, "theirs.csv", peopleCSV))
	theirs.Name = "theirs"
	theirs.Tenant = "t2"

	g := r.Reload(ctx, Snapshot{
		Sources: []models.SourceConfig{global, mine, theirs},
		Profiles: []models.Profile{{
			Name:     "default",
			Tenant:   "t1",
			Services: map[string]models.ServiceConfig{models.ServiceLookup: {Sources: []string{"theirs", "mine", "global"}}},
		}},
	})
	require.Equal(t, 3, g.Len())

	t.Run("Visible", func(t *testing.T) {
		assert.True(t, g.Visible("global", "t1"))
		assert.True(t, g.Visible("global", ""))
		assert.True(t, g.Visible("mine", "t1"))
		assert.False(t, g.Visible("mine", ""))
		assert.False(t, g.Visible("theirs", "t1"))
		assert.False(t, g.Visible("ghost", "t1"))
	})

	t.Run("ForProfile skips other tenants' sources", func(t *testing.T) {
		p, err := g.Profile("t1", "default")
		require.NoError(t, err)

		srcs := g.ForProfile(p, models.ServiceLookup, "t1")
		require.Len(t, srcs, 2)
		assert.Equal(t, "mine", srcs[0].Name())
		assert.Equal(t, "global", srcs[1].Name())
	})
}

func TestBreaker(t *testing.T) {
	ctx := context.Background()
	settings := BreakerSettings{MinRequests: 2, FailureRatio: 0.5, Interval: time.Minute, OpenTimeout: time.Minute}

	t.Run("opens after repeated failures", func(t *testing.T) {
		m := metrics.NewNop()
		inner := &failingSource{name: "flaky", err: errors.New("connection refused")}
		src := withBreaker(inner, BackendLDAP, settings, m, quietLogger())

		for range 2 {
			_, err := src.Search(ctx, "x", Args{})
			require.Error(t, err)
			assert.False(t, IsRejected(err))
		}

		_, err := src.FirstMatch(ctx, "x", Args{})
		assert.True(t, IsRejected(err))
		assert.Equal(t, 2, inner.calls, "open circuit does not reach the source")

		assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("flaky")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("flaky", "closed", "open")))
	})

	t.Run("cancellation is not a failure", func(t *testing.T) {
		inner := &failingSource{name: "slow", err: context.Canceled}
		src := withBreaker(inner, BackendWazo, settings, nil, quietLogger())

		for range 4 {
			_, err := src.List(ctx, []string{"1"}, Args{})
			assert.ErrorIs(t, err, context.Canceled)
		}
		assert.Equal(t, 4, inner.calls)
	})

	t.Run("passes results through", func(t *testing.T) {
		inner, err := NewCSVSource(ctx, csvConfig(writeFile(t, "people.csv", peopleCSV)), Dependencies{})
		require.NoError(t, err)
		src := withBreaker(inner, BackendCSV, settings, nil, quietLogger())

		results, err := src.Search(ctx, "ali", Args{})
		require.NoError(t, err)
		assert.Len(t, results, 1)

		c, err := src.FirstMatch(ctx, "nobody", Args{})
		require.NoError(t, err)
		assert.Nil(t, c)
	})
}
