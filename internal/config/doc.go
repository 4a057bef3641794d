// Package config loads the server's YAML configuration (spec
// SPEC_FULL.md §AMBIENT STACK): process settings (port, bearer token,
// data dir, sandbox root, default model, permission mode) and the list
// of configured model providers. A .env file alongside the config file
// is loaded first via joho/godotenv, so a provider's apiKey can be left
// blank in the YAML and filled from ANTHROPIC_API_KEY/OPENAI_API_KEY at
// load time. The file is watched with fsnotify for a safe subset of
// live reload (log level/pretty, default permission mode); everything
// else requires a restart since it's wired into components once at
// startup.
package config
