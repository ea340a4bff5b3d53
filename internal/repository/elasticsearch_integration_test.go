//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/config"
	"github.com/takumi-1234/postsearch/internal/port"
	"github.com/takumi-1234/postsearch/internal/repository"
	"github.com/takumi-1234/postsearch/internal/service"
)

const tweetMapping = `{
  "mappings": {
    "properties": {
      "tweet_id":          {"type": "keyword"},
      "text":              {"type": "text"},
      "username_owner":    {"type": "keyword"},
      "username_timeline": {"type": "keyword"},
      "likes":             {"type": "integer"}
    }
  }
}`

func setupElasticsearch(ctx context.Context) (string, func(), error) {
	req := testcontainers.ContainerRequest{
		Image:        "docker.elastic.co/elasticsearch/elasticsearch:9.1.0",
		ExposedPorts: []string{"9200/tcp"},
		Env: map[string]string{
			"discovery.type":         "single-node",
			"xpack.security.enabled": "false",
		},
		WaitingFor: wait.ForHTTP("/").WithPort("9200").WithStatusCodeMatcher(func(status int) bool { return status == http.StatusOK }).WithStartupTimeout(120 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		return "", nil, fmt.Errorf("failed to start elasticsearch container: %w", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			log.Fatalf("failed to terminate elasticsearch container: %v", err)
		}
	}

	endpoint, err := container.Endpoint(ctx, "http")
	if err != nil {
		return "", cleanup, err
	}
	return endpoint, cleanup, nil
}

func seedTweets(t *testing.T, es *elasticsearch.Client, index string) {
	t.Helper()

	res, err := es.Indices.Create(index, es.Indices.Create.WithBody(strings.NewReader(tweetMapping)))
	require.NoError(t, err)
	res.Body.Close()
	require.False(t, res.IsError(), res.String())

	docs := map[string]string{
		"tweet-1": `{"tweet_id":"tweet-1","text":"Happy new year from the whole team","username_owner":"alice","username_timeline":"alice","likes":42}`,
		"tweet-2": `{"tweet_id":"tweet-2","text":"New year resolutions thread","username_owner":"bob","username_timeline":"alice","likes":7}`,
		"tweet-3": `{"tweet_id":"tweet-3","text":"Hello world, first tweet","username_owner":"carol","username_timeline":"carol","likes":1}`,
	}
	for id, body := range docs {
		res, err := es.Index(index, strings.NewReader(body), es.Index.WithDocumentID(id), es.Index.WithRefresh("wait_for"))
		require.NoError(t, err)
		res.Body.Close()
		require.False(t, res.IsError(), res.String())
	}
}

func TestEngine_Integration(t *testing.T) {
	ctx := context.Background()

	endpoint, cleanup, err := setupElasticsearch(ctx)
	require.NoError(t, err, "failed to setup elasticsearch")
	defer cleanup()

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{endpoint}})
	require.NoError(t, err)
	seedTweets(t, es, "twitter_posts")

	res, err := es.Indices.Create("instagram_posts")
	require.NoError(t, err)
	res.Body.Close()

	for _, transport := range []string{repository.TransportTyped, repository.TransportRaw} {
		t.Run(transport, func(t *testing.T) {
			engine, err := repository.NewEngine(config.ElasticsearchConfig{
				Addresses: []string{endpoint},
				Transport: transport,
			}, nil)
			require.NoError(t, err)

			registry, err := service.NewRegistry(engine, map[service.ContentType]string{
				service.Twitter:   "twitter_posts",
				service.Instagram: "instagram_posts",
			}, port.DefaultSize, zap.NewNop())
			require.NoError(t, err)
			require.NoError(t, registry.CheckReady(ctx))
			require.NoError(t, registry.VerifyIndices(ctx))

			twitter, err := registry.Resolver(service.Twitter)
			require.NoError(t, err)

			records, err := twitter.Search(ctx, "happy new year", service.SearchOptions{})
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "tweet-1", records[0]["tweet_id"])

			// AND で一致しない場合は OR に緩和される
			records, err = twitter.Search(ctx, "year tweet", service.SearchOptions{})
			require.NoError(t, err)
			assert.Len(t, records, 3)

			records, err = twitter.Search(ctx, "new year", service.SearchOptions{
				Filters:     map[string]port.FilterValue{"username_owner": port.AnyOf("bob", "carol")},
				IncludeMeta: true,
			})
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "tweet-2", records[0]["_id"])
			assert.Equal(t, "twitter_posts", records[0]["_index"])

			records, err = twitter.Search(ctx, "new year", service.SearchOptions{
				Filters:  map[string]port.FilterValue{"username_timeline": port.Exact("alice")},
				Includes: []string{"tweet_id"},
			})
			require.NoError(t, err)
			require.Len(t, records, 2)
			for _, r := range records {
				assert.Len(t, r, 1)
			}

			suggestions, err := twitter.Suggest(ctx, port.SuggestionRequest{
				Text: "helo", Field: "text", Kind: port.SuggestTerm, Name: "s1", MaxErrors: port.DefaultMaxErrors,
			})
			require.NoError(t, err)
			assert.Contains(t, suggestions, "hello")

			// エスカレーションはエラーなく最終段まで到達する
			_, err = twitter.Search(ctx, "zzzz qqqq", service.SearchOptions{})
			require.NoError(t, err)
		})
	}

	t.Run("存在しないインデックス", func(t *testing.T) {
		engine, err := repository.NewEngine(config.ElasticsearchConfig{Addresses: []string{endpoint}}, nil)
		require.NoError(t, err)

		registry, err := service.NewRegistry(engine, map[service.ContentType]string{
			service.Twitter: "missing_posts",
		}, port.DefaultSize, zap.NewNop())
		require.NoError(t, err)

		assert.True(t, apperr.IsKind(registry.VerifyIndices(ctx), apperr.KindIndexMissing))

		twitter, err := registry.Resolver(service.Twitter)
		require.NoError(t, err)
		_, err = twitter.Search(ctx, "anything", service.SearchOptions{})
		assert.True(t, apperr.IsKind(err, apperr.KindIndexMissing))
	})
}
