/*
Package config loads the daemon's nested YAML configuration. The file is a
mapping of environment name to settings; the UPTIME_ENV environment
variable (default "local") selects which section applies, so one file can
carry local, staging and production settings side by side:

	local:
	  storage:
	    backend: BoltStorage
	    data_dir: ./uptimed-data
	  server:
	    with_consolidation: true
	  monitoring:
	    max_services: 10
	    check_every_seconds: 60
	    fast_retry_every_seconds: 5
	production:
	  storage:
	    backend: MongoStorage
	    uri: mongodb://uptime-db:27017
	    db: uptime
	  ...

Unknown backends, missing environment sections, a MongoStorage backend
without uri and db, and static services of an unknown kind are fatal at
startup; unset tunables fall back to a sensible default.
*/
package config
