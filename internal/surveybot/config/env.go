package config

import (
	"os"
	"strings"
)

// applyEnv overrides cfg with every variable that is set and non-empty.
func applyEnv(cfg *Config) {
	for name, dst := range map[string]*string{
		"PASSWORD":             &cfg.AdminSecret,
		"BASE_URL":             &cfg.BaseURL,
		"HTTP_ADDR":            &cfg.HTTPAddr,
		"DATABASE_PATH":        &cfg.DatabasePath,
		"STATIC_DIR":           &cfg.StaticDir,
		"COMMAND_MARKER":       &cfg.CommandMarker,
		"CHANNEL_SECRET":       &cfg.Line.ChannelSecret,
		"CHANNEL_ACCESS_TOKEN": &cfg.Line.ChannelAccessToken,
		"LINE_API_BASE":        &cfg.Line.APIBase,
		"MATRIX_HOMESERVER":    &cfg.Matrix.Homeserver,
		"MATRIX_USER_ID":       &cfg.Matrix.UserID,
		"MATRIX_ACCESS_TOKEN":  &cfg.Matrix.AccessToken,
		"FOOTPRINT_URL":        &cfg.Footprint.ListURL,
		"FOOTPRINT_ORIGIN":     &cfg.Footprint.Origin,
		"FOOTPRINT_KEYWORD":    &cfg.Footprint.Keyword,
		"LOG_LEVEL":            &cfg.Log.Level,
		"LOG_FORMAT":           &cfg.Log.Format,
	} {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if rooms := splitList(os.Getenv("MATRIX_ROOMS")); len(rooms) > 0 {
		cfg.Matrix.Rooms = rooms
	}
}

// splitList parses a comma-separated list, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
