// Package config loads the application configuration and split jobs.
//
// # Application configuration
//
// Load layers its sources, later ones winning:
//
//	1. Default()
//	2. a YAML file (stackedcsv.yaml or configs/stackedcsv.yaml when not given)
//	3. a .env file in the working directory
//	4. STACKEDCSV_* environment variables
//
// Environment variables follow the struct layout:
//
//	STACKEDCSV_LOGGING_LEVEL=debug
//	STACKEDCSV_BATCH_MAX_CONCURRENT=8
//	STACKEDCSV_PATHS_OUTPUT_DIR=/var/lib/stackedcsv
//
// # Jobs
//
// A job file holds the splitter settings for one input layout:
//
//	discriminator: Row Type
//	key_marker: first name
//	rename:
//	  Row Type: First Name
//	  Iter Number: Last Name
//	prefixes:
//	  - field: First Name
//	    prefix: "first name: "
//	trim_space: true
//
// LoadJob rejects unknown keys, checks the struct tags and then the splitter
// rules, so a job that loads is a job the pipeline accepts.
package config
