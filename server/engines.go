package server

// Storage engines available to the [store] configuration.
import (
	_ "github.com/janelia-flyem/mrf/storage/badger"
	_ "github.com/janelia-flyem/mrf/storage/blob"
)
