/*
Package server provides the HTTP service for MRF relaxation.  Volumes are
uploaded under a name, relaxation jobs run against stored volumes, and results
are written back for download.  Configuration is read from a TOML file:

	[server]
	httpAddress = "localhost:8000"
	maxConnections = 64
	note = "relaxation server for the fly brain"
	corsDomains = ["*"]

	[logging]
	logfile = "mrf.log"
	max_log_size = 500   # MB
	max_log_age = 30     # days
	level = "info"

	[store]
	engine = "badger"
	path = "data"

	[cache]
	size = 256           # MB, 0 for no cache

	[relax]
	workers = 8
	compression = "zstd"
	maxSteps = 50

	[auth]
	secret_key = "..."
	auth_file = "users.json"

	[kafka]
	servers = ["kafka1:9092"]

A .env file next to the TOML file and MRF_* environment variables override
selected settings.
*/
package server
