package inmemory

// Index names used by the sample data set.
const (
	TwitterIndex   = "twitter_posts"
	InstagramIndex = "instagram_posts"
	FacebookIndex  = "facebook_posts"
)

// SeedSampleData populates the engine with a deterministic set of posts that
// can be used across end-to-end tests and the load testing harness.
func SeedSampleData(e *Engine) error {
	e.CreateIndex(TwitterIndex)
	e.CreateIndex(InstagramIndex)
	e.CreateIndex(FacebookIndex)

	err := e.SeedDocuments(TwitterIndex,
		Document{ID: "tweet-1", Fields: map[string]interface{}{
			"tweet_id":          "tweet-1",
			"text":              "Happy new year from the whole team",
			"username_owner":    "alice",
			"username_timeline": "alice",
			"is_retweet":        false,
			"likes":             42,
		}},
		Document{ID: "tweet-2", Fields: map[string]interface{}{
			"tweet_id":          "tweet-2",
			"text":              "New year resolutions thread",
			"username_owner":    "bob",
			"username_timeline": "alice",
			"is_retweet":        true,
			"likes":             7,
		}},
		Document{ID: "tweet-3", Fields: map[string]interface{}{
			"tweet_id":          "tweet-3",
			"text":              "Hello world, first tweet",
			"username_owner":    "carol",
			"username_timeline": "carol",
			"is_retweet":        false,
			"likes":             1,
		}},
		Document{ID: "tweet-4", Fields: map[string]interface{}{
			"tweet_id":          "tweet-4",
			"text":              "Coffee before the standup",
			"username_owner":    "bob",
			"username_timeline": "bob",
			"is_retweet":        false,
			"likes":             3,
		}},
	)
	if err != nil {
		return err
	}
	if err := e.SeedSuggestions(TwitterIndex, "helo wrld", "hello world", "help world"); err != nil {
		return err
	}
	if err := e.SeedSuggestions(TwitterIndex, "cofee standp", "coffee standup"); err != nil {
		return err
	}

	err = e.SeedDocuments(InstagramIndex,
		Document{ID: "insta-1", Fields: map[string]interface{}{
			"post_id":  "insta-1",
			"text":     "Sunset at the beach",
			"username": "alice",
			"likes":    120,
			"is_video": false,
		}},
		Document{ID: "insta-2", Fields: map[string]interface{}{
			"post_id":  "insta-2",
			"text":     "Beach volleyball highlights",
			"username": "dave",
			"likes":    64,
			"is_video": true,
		}},
	)
	if err != nil {
		return err
	}
	return e.SeedSuggestions(InstagramIndex, "sunst", "sunset")
}
