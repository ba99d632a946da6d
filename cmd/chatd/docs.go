package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           chatd API
// @version         1.0
// @description     HTTP API for token-budgeted chat sessions over local LLM backends.
//
// @contact.name   chatd maintainers
// @contact.url    https://github.com/your-org/chatd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
