package bootstrap

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/partnerforge/progression/pkg/catalog"
)

// InitCatalog loads the progression catalog from path, or the embedded default
// catalog when path is empty.
//
// To change ranks, lessons or weekly challenges, edit the catalog YAML, not code.
// A custom file may reference environment variables as ${VAR} or ${VAR:default}.
func InitCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		c, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load embedded catalog: %w", err)
		}
		logrus.Infof("loaded embedded catalog: %d ranks, %d lessons, %d challenges",
			len(c.Ranks), len(c.Lessons), len(c.Challenges))
		return c, nil
	}

	c, err := catalog.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logrus.Infof("loaded catalog from %s: %d ranks, %d lessons, %d challenges",
		path, len(c.Ranks), len(c.Lessons), len(c.Challenges))
	return c, nil
}
