// Package apiclient is the CLI's HTTP client for the castspc daemon API.
package apiclient
