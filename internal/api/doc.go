// Package api exposes live tracker trees and persisted run history over HTTP.
package api
