package cmd

// Search providers register themselves in init(). Blank imports link them
// into the binary so config.Search.Provider can select them.

import (
	_ "github.com/rubiojr/yatra/pkg/provider/catalog"
	_ "github.com/rubiojr/yatra/pkg/provider/httpsearch"
)
