package restream

import (
	"strings"
)

// BuildCommand builds the encoder command that reads the live HLS feed and
// republishes it to a platform ingest endpoint. Video passes through
// untouched; audio is re-encoded to AAC since RTMP ingests reject raw
// passthrough audio from some upstreams.
func BuildCommand(manifestURL, ingestURL, streamKey string) string {
	var cmd strings.Builder

	cmd.WriteString("ffmpeg -hide_banner -loglevel level+info")
	cmd.WriteString(" -i " + manifestURL)
	cmd.WriteString(" -c:v copy")
	cmd.WriteString(" -c:a aac -b:a 128k")
	cmd.WriteString(" -f flv ")
	cmd.WriteString(strings.TrimRight(ingestURL, "/") + "/" + streamKey)

	return cmd.String()
}

// ParseEncoderLine extracts the log level from encoder output.
// With -loglevel level+info ffmpeg prefixes lines like "[info] message" or
// "[component @ 0x...] [level] message". The level is returned with the
// component prefix preserved in the message, so the encoder logger can
// suppress progress spam below its configured level.
func ParseEncoderLine(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return "info", line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "info", line
	}

	bracket := line[1:end]
	if isEncoderLevel(bracket) {
		return bracket, line[end+2:]
	}

	component := line[:end+2]
	rest := line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if nextEnd := strings.Index(rest, "] "); nextEnd != -1 {
			if nextBracket := rest[1:nextEnd]; isEncoderLevel(nextBracket) {
				return nextBracket, component + rest[nextEnd+2:]
			}
		}
	}

	return "info", line
}

func isEncoderLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}
