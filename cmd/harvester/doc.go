/*
Harvester discovers articles about a list of topics on a list of domains.

Usage:

	harvester run --config config.yaml [--no-scrape] [--dedup on|off|batch]
	harvester validate --config config.yaml

Every setting can also be supplied through HARVESTER_* environment
variables, for example HARVESTER_SCRAPE_ENGINE=headless.
*/
package main
