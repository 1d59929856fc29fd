package igdb_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedex/internal/domain"
	"github.com/gamedex/internal/igdb"
	"github.com/gamedex/internal/igdb/igdbtest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) (*igdb.Client, *igdbtest.Server) {
	t.Helper()
	srv := igdbtest.NewServer(
		igdbtest.Game(1942, "The Witcher 3: Wild Hunt", 1431993600, 1020, 472),
		igdbtest.Game(1020, "Grand Theft Auto V", 1379376000),
		igdbtest.Game(472, "The Elder Scrolls V: Skyrim", 1320969600),
		igdbtest.Game(7346, "The Legend of Zelda: Breath of the Wild", 1488499200),
	)
	t.Cleanup(srv.Close)
	return igdb.NewClient(srv.Config(), testLogger()), srv
}

func TestQueryBodies(t *testing.T) {
	assert.Equal(t,
		`search "zelda"; fields id,name,cover.image_id,first_release_date; limit 10;`,
		igdb.NewQuery(igdb.SearchFields...).Search("zelda").Limit(10).String())
	assert.Equal(t,
		`fields id,name,summary,rating,rating_count,first_release_date,cover.image_id,screenshots.image_id,platforms.name,similar_games; where id = 1942;`,
		igdb.NewQuery(igdb.DetailFields...).WhereID(1942).String())
	assert.Equal(t,
		`fields id,name,cover.image_id,first_release_date; where id = (1,2,3); limit 6;`,
		igdb.NewQuery(igdb.SearchFields...).WhereIDs([]int64{1, 2, 3}).Limit(igdb.SimilarGamesLimit).String())
	assert.Equal(t,
		`search "say \"hi\" \\o/"; fields id;`,
		igdb.NewQuery("id").Search(`say "hi" \o/`).String())
}

func TestImageURL(t *testing.T) {
	images := igdb.NewImages("")
	assert.Equal(t, "https://images.igdb.com/igdb/image/upload/t_cover_big/co1wyy.jpg", images.URL("co1wyy", igdb.SizeCoverBig))
	assert.Equal(t, "https://images.igdb.com/igdb/image/upload/t_screenshot_huge/sc6.jpg", images.URL("sc6", igdb.SizeScreenshotHuge))
	assert.Equal(t, "https://images.igdb.com/igdb/image/upload/t_cover_big/x.jpg", images.URL("x", "bogus"))
	assert.Equal(t, "", images.URL("", igdb.SizeThumb))

	custom := igdb.NewImages("https://cdn.test/img/")
	assert.Equal(t, "https://cdn.test/img/t_720p/a.jpg", custom.URL("a", igdb.Size720p))
}

func TestClientSearch(t *testing.T) {
	client, srv := newFixture(t)

	results, err := client.Search(context.Background(), "the", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(472), results[0].ID)
	assert.Equal(t, "co472", results[0].Cover.ImageID)

	empty, err := client.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, 1, srv.GameRequests())
}

func TestClientGameByID(t *testing.T) {
	client, _ := newFixture(t)

	game, err := client.GameByID(context.Background(), 1942)
	require.NoError(t, err)
	assert.Equal(t, "The Witcher 3: Wild Hunt", game.Name)
	assert.Equal(t, []int64{1020, 472}, game.SimilarGames)
	require.NotNil(t, game.Rating)
	assert.Equal(t, []string{"PC (Microsoft Windows)"}, game.PlatformNames())

	// no similar games comes back as an empty list, never nil
	game, err = client.GameByID(context.Background(), 1020)
	require.NoError(t, err)
	assert.NotNil(t, game.SimilarGames)
	assert.Empty(t, game.SimilarGames)

	_, err = client.GameByID(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrGameNotFound)
}

func TestClientGamesByIDs(t *testing.T) {
	client, srv := newFixture(t)

	results, err := client.GamesByIDs(context.Background(), []int64{472, 1020, 1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Contains(t, srv.Bodies()[0], "limit 6;")

	none, err := client.GamesByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClientCachesToken(t *testing.T) {
	client, srv := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Search(context.Background(), "zelda", 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, srv.TokenRequests())
	assert.Equal(t, 8, srv.GameRequests())
}

func TestClientRefreshesRejectedToken(t *testing.T) {
	client, srv := newFixture(t)
	srv.RejectTokens(1)

	results, err := client.Search(context.Background(), "zelda", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 2, srv.TokenRequests())
	assert.Equal(t, 2, srv.GameRequests())
}

func TestClientProviderError(t *testing.T) {
	client, srv := newFixture(t)
	srv.FailGames(http.StatusServiceUnavailable)

	_, err := client.Search(context.Background(), "zelda", 5)
	var perr *igdb.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	assert.Equal(t, "/games", perr.Endpoint)
}

func TestClientTokenErrors(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		srv := igdbtest.NewServer()
		defer srv.Close()
		cfg := srv.Config()
		cfg.ClientSecret = ""

		_, err := igdb.NewClient(cfg, testLogger()).Search(context.Background(), "x", 1)
		assert.ErrorIs(t, err, igdb.ErrMissingCredentials)
		assert.Equal(t, 0, srv.TokenRequests())
	})

	t.Run("rejected exchange", func(t *testing.T) {
		srv := igdbtest.NewServer()
		defer srv.Close()
		cfg := srv.Config()
		cfg.ClientSecret = "wrong"

		_, err := igdb.NewClient(cfg, testLogger()).Search(context.Background(), "x", 1)
		var terr *igdb.TokenError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, http.StatusBadRequest, terr.StatusCode)
		assert.Equal(t, 0, srv.GameRequests())
	})
}

func TestClientRaw(t *testing.T) {
	client, _ := newFixture(t)

	data, err := client.Raw(context.Background(), "/games", "fields id,name; where id = 1020;")
	require.NoError(t, err)
	assert.Contains(t, string(data), "Grand Theft Auto V")

	_, err = client.Raw(context.Background(), "/../secrets", "fields *;")
	assert.ErrorIs(t, err, igdb.ErrInvalidEndpoint)
}

func TestClientCancelledContext(t *testing.T) {
	client, _ := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Search(ctx, "zelda", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientRejectsOversizedResponse(t *testing.T) {
	client, srv := newFixture(t)

	srv.PadGames(1 << 10)
	results, err := client.Search(context.Background(), "zelda", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	srv.PadGames(5 << 20)
	_, err = client.Search(context.Background(), "zelda", 5)
	assert.ErrorIs(t, err, igdb.ErrResponseTooLarge)
}
