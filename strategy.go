package h5ar

import (
	"log"
	"path/filepath"
	"strings"
)

// ErrorStrategy is the single cancellation lever described in spec §5
// "Cancellation and timeouts": every surfaceable error is routed
// through one of these. FailFastErrorStrategy re-throws; a
// ContinueErrorStrategy logs and swallows.
type ErrorStrategy interface {
	// Handle is called with a surfaceable error. It returns non-nil to
	// abort the current operation, or nil to continue.
	Handle(err error) error
}

// FailFastErrorStrategy re-throws every error it is given.
type FailFastErrorStrategy struct{}

func (FailFastErrorStrategy) Handle(err error) error { return err }

// ContinueErrorStrategy logs every error to the given logger (or the
// standard logger, if nil) and returns nil, letting the caller proceed
// as if the failed entry were simply absent.
type ContinueErrorStrategy struct {
	Logger *log.Logger
}

func (s ContinueErrorStrategy) Handle(err error) error {
	if err == nil {
		return nil
	}
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("h5ar: %v", err)
	return nil
}

// CompressionPolicy selects how ArchivingStrategy.ShouldCompress
// decides whether a given path's content is deflated.
type CompressionPolicy int

const (
	CompressNothing CompressionPolicy = iota
	CompressAll
	UseBlackWhiteLists
)

// ArchivingStrategy governs both the compression and inclusion
// decisions made while archiving a filesystem tree (spec §4.5).
// Whitelist/blacklist entries are filepath.Match-style glob patterns
// matched against the archive-relative path; an absent (nil/empty)
// whitelist matches everything.
type ArchivingStrategy struct {
	Compression CompressionPolicy

	CompressWhitelist []string
	CompressBlacklist []string

	FileWhitelist []string
	FileBlacklist []string

	DirWhitelist []string
	DirBlacklist []string
}

// DefaultArchivingStrategy compresses everything matching the
// whitelist/blacklist rule, with a blacklist of already-compressed
// extensions, and includes everything.
func DefaultArchivingStrategy() ArchivingStrategy {
	return ArchivingStrategy{
		Compression:       UseBlackWhiteLists,
		CompressBlacklist: []string{"*.zip", "*.gz", "*.bz2"},
	}
}

func matchesAny(patterns []string, name string) bool {
	// Archive paths are always "/"-prefixed (paths.go's
	// normalizeArchivePath); filepath.Match's "*" never crosses a
	// leading separator, so strip it before matching or every pattern
	// silently fails to match any real archive path.
	name = strings.TrimPrefix(name, "/")
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// matchesLists implements the shared whitelist/blacklist rule: include
// iff whitelist matches (or is empty) and blacklist does not match.
func matchesLists(whitelist, blacklist []string, name string) bool {
	if len(whitelist) > 0 && !matchesAny(whitelist, name) {
		return false
	}
	if matchesAny(blacklist, name) {
		return false
	}
	return true
}

// ShouldCompress decides whether path's content should be deflated.
func (s ArchivingStrategy) ShouldCompress(path string) bool {
	switch s.Compression {
	case CompressNothing:
		return false
	case CompressAll:
		return true
	default:
		return matchesLists(s.CompressWhitelist, s.CompressBlacklist, path)
	}
}

// ShouldInclude decides whether path should be archived at all.
func (s ArchivingStrategy) ShouldInclude(path string, isDir bool) bool {
	if isDir {
		return matchesLists(s.DirWhitelist, s.DirBlacklist, path)
	}
	return matchesLists(s.FileWhitelist, s.FileBlacklist, path)
}
