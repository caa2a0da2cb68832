// config.go - Haupt-Konfigurationsfunktionen fuer Embedr
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (EMBEDR_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (EMBEDR_ORIGINS)
// - Models: Gibt Checkpoint-Verzeichnis zurueck (EMBEDR_MODELS)
// - LogLevel: Gibt Log-Level zurueck (EMBEDR_DEBUG)
// - MaxSessions: Gibt maximale Session-Anzahl zurueck (EMBEDR_MAX_SESSIONS)
//
// Utility-Funktionen und AsMap/Values sind in config_utils.go.
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via EMBEDR_HOST
// Default: http://127.0.0.1:11711
func Host() *url.URL {
	defaultPort := "11711"

	s := strings.TrimSpace(Var("EMBEDR_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via EMBEDR_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("EMBEDR_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	// Standard-Origins fuer localhost
	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	origins = append(origins,
		"app://*",
		"file://*",
		"vscode-webview://*",
		"vscode-file://*",
	)

	return origins
}

// Models gibt das Checkpoint-Verzeichnis zurueck
// Konfigurierbar via EMBEDR_MODELS
// Default: $HOME/.embedr/models
func Models() string {
	if s := Var("EMBEDR_MODELS"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".embedr", "models")
}

// MaxSessions gibt die maximale Anzahl gleichzeitiger Inferenz-Sessions
// zurueck
// Konfigurierbar via EMBEDR_MAX_SESSIONS
// Default: 64
var MaxSessions = Uint("EMBEDR_MAX_SESSIONS", 64)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via EMBEDR_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("EMBEDR_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
