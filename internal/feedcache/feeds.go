// Package feedcache maintains the deduplicated, bounded-age pool of
// externally ingested feed items that backs the live feed evidence source.
package feedcache

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FeedConfig identifies one syndicated feed to ingest.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// LoadFeeds reads the feed list from a YAML file.
//
// Format:
//
//	feeds:
//	  - name: bbc-tech
//	    url: https://feeds.bbci.co.uk/news/technology/rss.xml
func LoadFeeds(path string) ([]FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feedcache: read config %s", path)
	}

	var wrapper struct {
		Feeds []FeedConfig `yaml:"feeds"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "feedcache: parse config")
	}

	for i, feed := range wrapper.Feeds {
		if feed.Name == "" || feed.URL == "" {
			return nil, eris.Errorf("feedcache: feed %d missing name or url", i)
		}
	}
	return wrapper.Feeds, nil
}
