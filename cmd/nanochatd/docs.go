package main

// General API documentation for swaggo. Regenerate docs/ with:
//   swag init -g cmd/nanochatd/docs.go -o docs
//
// @title           nanochatd API
// @version         1.0
// @description     OpenAI-compatible chat completions served from a local nanochat model.
//
// @contact.name   nanochatd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
