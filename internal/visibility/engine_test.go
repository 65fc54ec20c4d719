package visibility

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coordinote/server/internal/auth"
	"github.com/coordinote/server/internal/model"
	"github.com/coordinote/server/internal/repo"
)

// ---- in-memory fakes -------------------------------------------------------

type fakeUserRepo struct{}

func (fakeUserRepo) Create(context.Context, string, string) (model.User, error) {
	return model.User{}, repo.ErrDuplicate
}
func (fakeUserRepo) GetByUsername(context.Context, string) (model.User, error) {
	return model.User{}, repo.ErrNotFound
}
func (fakeUserRepo) GetByID(context.Context, int64) (model.User, error) {
	return model.User{}, repo.ErrNotFound
}

type fakeSessionRepo struct {
	byToken map[string]model.Session
}

func (f *fakeSessionRepo) Create(_ context.Context, s model.Session) error {
	f.byToken[s.Token] = s
	return nil
}

func (f *fakeSessionRepo) GetByToken(_ context.Context, token string) (model.Session, error) {
	s, ok := f.byToken[token]
	if !ok {
		return model.Session{}, repo.ErrNotFound
	}
	return s, nil
}

type fakeUniverseRepo struct {
	members map[[2]int64]bool // (uniID, userID)
}

func (f *fakeUniverseRepo) Create(context.Context, string, string, model.UniverseAccess, int64) (model.Universe, error) {
	return model.Universe{}, nil
}
func (f *fakeUniverseRepo) ListForUser(context.Context, int64) ([]model.UniverseSummary, error) {
	return nil, nil
}
func (f *fakeUniverseRepo) IsMember(_ context.Context, userID, uniID int64) (bool, error) {
	return f.members[[2]int64{uniID, userID}], nil
}
func (f *fakeUniverseRepo) Join(_ context.Context, userID, uniID int64) error {
	f.members[[2]int64{uniID, userID}] = true
	return nil
}
func (f *fakeUniverseRepo) Leave(_ context.Context, userID, uniID int64) error {
	delete(f.members, [2]int64{uniID, userID})
	return nil
}

type fakeMessageRepo struct {
	byID   map[int64]model.Message
	nextID int64
}

func (f *fakeMessageRepo) Create(_ context.Context, m model.Message) (model.Message, error) {
	m.ID = f.nextID
	f.nextID++
	m.CreatedAt = time.Now()
	f.byID[m.ID] = m
	return m, nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, id int64) (model.Message, error) {
	m, ok := f.byID[id]
	if !ok {
		return model.Message{}, repo.ErrNotFound
	}
	return m, nil
}

func (f *fakeMessageRepo) ListByUniverse(_ context.Context, uniID int64) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.byID {
		if m.UniverseID == uniID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeLocationRepo struct {
	byID map[int64]model.Location
}

func (f *fakeLocationRepo) Get(_ context.Context, id int64) (model.Location, error) {
	loc, ok := f.byID[id]
	if !ok {
		return model.Location{}, repo.ErrNotFound
	}
	return loc, nil
}
func (f *fakeLocationRepo) List(context.Context, string) ([]model.Location, error) { return nil, nil }
func (f *fakeLocationRepo) InsertBatch(context.Context, []model.Location) (int64, error) {
	return 0, nil
}

// fakeViewRepo mirrors the database's atomicity: one mutex-guarded
// check-and-insert, so concurrent RecordSeen calls admit exactly one.
type fakeViewRepo struct {
	mu   sync.Mutex
	seen map[[2]int64]bool // (messageID, userID)
}

func (f *fakeViewRepo) HasSeen(_ context.Context, messageID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[[2]int64{messageID, userID}], nil
}

func (f *fakeViewRepo) RecordSeen(_ context.Context, messageID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]int64{messageID, userID}
	if f.seen[key] {
		return repo.ErrAlreadySeen
	}
	f.seen[key] = true
	return nil
}

// ---- fixture ---------------------------------------------------------------

const (
	aliceID = int64(1)
	bobID   = int64(2)
	uniID   = int64(10)

	aliceToken = "tok-alice"
	bobToken   = "tok-bob"
	staleToken = "tok-stale"
)

var anchor = model.Coordinate{Lon: -9.1393, Lat: 38.7223}

// north returns a coordinate the given number of meters due north of c.
// On the same meridian the great-circle distance equals the latitude
// difference, so these offsets are exact.
func north(c model.Coordinate, meters float64) model.Coordinate {
	const metersPerDegLat = 6371008.8 * math.Pi / 180
	return model.Coordinate{Lon: c.Lon, Lat: c.Lat + meters/metersPerDegLat}
}

type fixture struct {
	engine    *Engine
	sessions  *fakeSessionRepo
	universes *fakeUniverseRepo
	messages  *fakeMessageRepo
	locations *fakeLocationRepo
	views     *fakeViewRepo
}

func newFixture() *fixture {
	now := time.Now().UTC()
	f := &fixture{
		sessions:  &fakeSessionRepo{byToken: make(map[string]model.Session)},
		universes: &fakeUniverseRepo{members: make(map[[2]int64]bool)},
		messages:  &fakeMessageRepo{byID: make(map[int64]model.Message), nextID: 1},
		locations: &fakeLocationRepo{byID: make(map[int64]model.Location)},
		views:     &fakeViewRepo{seen: make(map[[2]int64]bool)},
	}

	f.sessions.byToken[aliceToken] = model.Session{Token: aliceToken, UserID: aliceID, IssuedAt: now, ExpiresAt: now.Add(auth.SessionTTL)}
	f.sessions.byToken[bobToken] = model.Session{Token: bobToken, UserID: bobID, IssuedAt: now, ExpiresAt: now.Add(auth.SessionTTL)}
	f.sessions.byToken[staleToken] = model.Session{Token: staleToken, UserID: aliceID, IssuedAt: now.Add(-auth.SessionTTL - time.Second), ExpiresAt: now.Add(-time.Second)}

	// alice is a member, bob is not
	f.universes.members[[2]int64{uniID, aliceID}] = true

	authService := auth.NewService(fakeUserRepo{}, f.sessions)
	f.engine = NewEngine(authService, f.universes, f.messages, f.locations, f.views)
	return f
}

func (f *fixture) addMessage(t *testing.T, coord model.Coordinate, unlockRadius float64, viewOnce bool, text string) model.Message {
	t.Helper()
	m, err := f.messages.Create(context.Background(), model.Message{
		UniverseID:   uniID,
		CreatorID:    aliceID,
		Type:         model.TypeText,
		Text:         text,
		UnlockRadius: unlockRadius,
		ViewOnce:     viewOnce,
		Coord:        coord,
	})
	require.NoError(t, err)
	return m
}

// ---- ListNearby ------------------------------------------------------------

func TestListNearby_unlockGating(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addMessage(t, anchor, 50, false, "secret note")

	// 30 m away: inside the 50 m unlock radius
	views, err := f.engine.ListNearby(ctx, aliceToken, north(anchor, 30), uniID, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].CanOpen)
	assert.Equal(t, "secret note", views[0].Text)
	assert.InDelta(t, 30, views[0].DistanceMeters, 0.01)
	assert.Equal(t, 50.0, views[0].UnlockRadius)

	// 80 m away: discoverable but locked
	views, err = f.engine.ListNearby(ctx, aliceToken, north(anchor, 80), uniID, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, views[0].CanOpen)
	assert.Equal(t, LockedPlaceholder, views[0].Text)
	assert.InDelta(t, 80, views[0].DistanceMeters, 0.01)
}

func TestListNearby_searchRadiusIndependentOfUnlockRadius(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addMessage(t, north(anchor, 500), 50, false, "near")
	far := f.addMessage(t, north(anchor, 1500), 5000, false, "far")

	// Default 1000 m search radius: the far message is not surfaced even
	// though its generous unlock radius would reveal it.
	views, err := f.engine.ListNearby(ctx, aliceToken, anchor, uniID, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "near", views[0].Text)

	// Widening the search radius surfaces it, unlocked.
	views, err = f.engine.ListNearby(ctx, aliceToken, anchor, uniID, 2000)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, far.ID, views[1].ID)
	assert.True(t, views[1].CanOpen)
}

func TestListNearby_orderedByDistanceThenID(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addMessage(t, north(anchor, 300), 50, false, "c")
	f.addMessage(t, north(anchor, 100), 50, false, "a")
	tie1 := f.addMessage(t, north(anchor, 200), 50, false, "b1")
	tie2 := f.addMessage(t, north(anchor, 200), 50, false, "b2")

	views, err := f.engine.ListNearby(ctx, aliceToken, anchor, uniID, 0)
	require.NoError(t, err)
	require.Len(t, views, 4)

	for i := 1; i < len(views); i++ {
		assert.LessOrEqual(t, views[i-1].DistanceMeters, views[i].DistanceMeters,
			"results must be non-decreasing in distance")
	}
	// equal distance: lower id first
	assert.Equal(t, tie1.ID, views[1].ID)
	assert.Equal(t, tie2.ID, views[2].ID)
}

func TestListNearby_consumedViewOnceStaysMasked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.addMessage(t, anchor, 50, true, "one shot")

	caller := north(anchor, 10)

	views, err := f.engine.ListNearby(ctx, aliceToken, caller, uniID, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "one shot", views[0].Text, "unconsumed view-once in range shows content")

	res, err := f.engine.Open(ctx, aliceToken, m.ID, &caller)
	require.NoError(t, err)
	require.Equal(t, StatusOpened, res.Status)

	// Consumption wins over proximity: still in range, but masked now.
	views, err = f.engine.ListNearby(ctx, aliceToken, caller, uniID, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].CanOpen)
	assert.Equal(t, ConsumedPlaceholder, views[0].Text)
}

func TestListNearby_expiredSession(t *testing.T) {
	f := newFixture()
	f.addMessage(t, anchor, 50, false, "hidden")

	_, err := f.engine.ListNearby(context.Background(), staleToken, anchor, uniID, 0)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestListNearby_nonMemberForbidden(t *testing.T) {
	f := newFixture()
	f.addMessage(t, anchor, 50, false, "members only")

	views, err := f.engine.ListNearby(context.Background(), bobToken, anchor, uniID, 0)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Nil(t, views, "no message data may leak to non-members")
}

// ---- Open ------------------------------------------------------------------

func TestOpen_repeatableWithoutViewOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.addMessage(t, anchor, 50, false, "sticky note")

	first, err := f.engine.Open(ctx, aliceToken, m.ID, nil)
	require.NoError(t, err)
	second, err := f.engine.Open(ctx, aliceToken, m.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusOpened, first.Status)
	assert.Equal(t, first, second, "opening a non-view-once message is idempotent")
	assert.Equal(t, "sticky note", second.Text)
}

func TestOpen_viewOnceSpentOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.addMessage(t, anchor, 50, true, "burn after reading")

	first, err := f.engine.Open(ctx, aliceToken, m.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOpened, first.Status)
	assert.Equal(t, "burn after reading", first.Text)

	second, err := f.engine.Open(ctx, aliceToken, m.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyViewed, second.Status)
	assert.Empty(t, second.Text, "no content after the one-time reveal is spent")
}

func TestOpen_concurrentExactlyOnce(t *testing.T) {
	f := newFixture()
	m := f.addMessage(t, anchor, 50, true, "now you see me")

	const n = 20
	results := make(chan OpenStatus, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.Open(context.Background(), aliceToken, m.ID, nil)
			if err != nil {
				t.Errorf("Open() error: %v", err)
				return
			}
			results <- res.Status
		}()
	}
	wg.Wait()
	close(results)

	opened, alreadyViewed := 0, 0
	for status := range results {
		switch status {
		case StatusOpened:
			opened++
		case StatusAlreadyViewed:
			alreadyViewed++
		default:
			t.Errorf("unexpected status %q", status)
		}
	}
	assert.Equal(t, 1, opened, "exactly one concurrent open succeeds")
	assert.Equal(t, n-1, alreadyViewed)
}

func TestOpen_notFoundAndForbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.addMessage(t, anchor, 50, true, "hidden")

	res, err := f.engine.Open(ctx, aliceToken, 9999, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)

	res, err = f.engine.Open(ctx, bobToken, m.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusForbidden, res.Status)
	assert.Empty(t, res.Text)

	_, err = f.engine.Open(ctx, "bogus", m.ID, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestOpen_proximityRecheckOnlyWithCoordinate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.addMessage(t, anchor, 50, true, "come closer")

	// With a coordinate outside the unlock radius the open is refused and
	// the one-time view is NOT spent.
	farAway := north(anchor, 500)
	res, err := f.engine.Open(ctx, aliceToken, m.ID, &farAway)
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, res.Status)
	assert.Empty(t, res.Text)

	// Without a coordinate the listing-time gate is trusted.
	res, err = f.engine.Open(ctx, aliceToken, m.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOpened, res.Status)
}

// ---- Post ------------------------------------------------------------------

func TestPost_inlineCoordinate(t *testing.T) {
	f := newFixture()

	msg, err := f.engine.Post(context.Background(), aliceToken, Draft{
		UniverseID:   uniID,
		Type:         model.TypeText,
		Text:         "dropped here",
		UnlockRadius: 75,
		Coord:        &anchor,
	})
	require.NoError(t, err)
	assert.Equal(t, aliceID, msg.CreatorID)
	assert.Equal(t, anchor, msg.Coord)

	views, err := f.engine.ListNearby(context.Background(), aliceToken, anchor, uniID, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "dropped here", views[0].Text)
}

func TestPost_catalogLocation(t *testing.T) {
	f := newFixture()
	f.locations.byID[3] = model.Location{ID: 3, Name: "Rossio", Category: "metro", Coord: anchor}
	locID := int64(3)

	msg, err := f.engine.Post(context.Background(), aliceToken, Draft{
		UniverseID:   uniID,
		Type:         model.TypeText,
		Text:         "meet me at the station",
		UnlockRadius: 75,
		LocationID:   &locID,
	})
	require.NoError(t, err)
	assert.Equal(t, anchor, msg.Coord, "catalog coordinate is resolved at post time")
	assert.Equal(t, "Rossio", msg.LocationName)
}

func TestPost_validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	locID := int64(3)

	cases := []struct {
		name  string
		draft Draft
	}{
		{"no anchor", Draft{UniverseID: uniID, Type: model.TypeText, Text: "x", UnlockRadius: 10}},
		{"both anchors", Draft{UniverseID: uniID, Type: model.TypeText, Text: "x", UnlockRadius: 10, Coord: &anchor, LocationID: &locID}},
		{"empty text", Draft{UniverseID: uniID, Type: model.TypeText, Text: "  ", UnlockRadius: 10, Coord: &anchor}},
		{"zero radius", Draft{UniverseID: uniID, Type: model.TypeText, Text: "x", UnlockRadius: 0, Coord: &anchor}},
		{"bad type", Draft{UniverseID: uniID, Type: "video", Text: "x", UnlockRadius: 10, Coord: &anchor}},
		{"poll without payload", Draft{UniverseID: uniID, Type: model.TypePoll, Text: "x", UnlockRadius: 10, Coord: &anchor}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Post(ctx, aliceToken, tc.draft)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPost_unknownLocation(t *testing.T) {
	f := newFixture()
	locID := int64(404)

	_, err := f.engine.Post(context.Background(), aliceToken, Draft{
		UniverseID:   uniID,
		Type:         model.TypeText,
		Text:         "x",
		UnlockRadius: 10,
		LocationID:   &locID,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
