// Package cli provides the `seglog` command-line interface.
//
// Every command opens the data directory directly; there is no server. Output
// is JSON, one object per line, except `report` which prints text unless
// --json is given.
//
// Usage
//
//	seglog stream create chat --max-segment-bytes 1048576
//	seglog stream list
//	seglog stream delete chat --confirm
//
//	seglog append --stream chat 'hello' '{"user":"ana"}'
//	printf 'a\nb\n' | seglog append --stream chat
//
//	seglog read --stream chat 42
//	seglog range --stream chat 40 60
//	seglog range --stream chat 1 1000 --filter 'size > 100 && json.user == "ana"'
//	seglog seek --stream chat 2025-09-20T12:00:00Z
//
//	seglog segments --stream chat
//	seglog rotate --stream chat
//	seglog verify --stream chat 3
//	seglog verify --stream chat --all
//
//	seglog retention --stream chat --max-age 168h --archive-dir /mnt/cold
//	seglog usage --stream chat
//	seglog report --stream chat --verify
//
//	seglog maintain            # periodic retention and verification
//	seglog maintain --once
//
// Configuration is read from --config (JSON or YAML), then SEGLOG_* environment
// variables, then the global flags. Without --stream the configured default
// stream is used.
package cli
