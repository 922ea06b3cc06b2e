package toolruntime

import (
	"context"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"reach/core/internal/reacherr"
)

// Policy is the profile a Tool Runtime call enforces before I/O
// (spec.md §4.3 "Policy enforcement"). The runtime passes the same
// profile through to handlers so a handler can repeat the endpoint
// check per redirect hop.
type Policy struct {
	AllowedPaths     []string
	WritablePaths    []string
	ReadonlyPaths    []string
	AllowedCommands  []string
	AllowedEndpoints []string
}

var sensitiveFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(^|/)\.env(\..+)?$`),
	regexp.MustCompile(`(^|/)\.ssh/`),
	regexp.MustCompile(`(^|/)\.aws/credentials$`),
	regexp.MustCompile(`(^|/)\.gnupg/`),
	regexp.MustCompile(`(^|/)id_rsa`),
	regexp.MustCompile(`(^|/)id_ed25519`),
	regexp.MustCompile(`(^|/)\.netrc$`),
}

// isSensitivePath reports whether path names a file this core always
// denies for read or write, regardless of allowed_paths (spec.md §4.3
// "sensitive files").
func isSensitivePath(path string) bool {
	clean := filepath.ToSlash(path)
	for _, re := range sensitiveFilePatterns {
		if re.MatchString(clean) {
			return true
		}
	}
	return false
}

// CheckPathAccess enforces allowed_paths / writable_paths /
// readonly_paths for a read or write of path. realPath is the
// symlink-resolved form of path — callers MUST resolve symlinks on
// both path and every allowed_paths entry before calling this (spec.md
// §4.3: "after resolving symlinks on BOTH sides").
func CheckPathAccess(p Policy, realPath string, write bool) error {
	if isSensitivePath(realPath) {
		return reacherr.New(reacherr.CodeSensitiveFileDenied, "path denied: "+realPath)
	}

	if !pathWithinAny(realPath, resolveAll(p.AllowedPaths)) {
		return reacherr.New(reacherr.CodePolicyPathDenied, "path outside allowed_paths: "+realPath)
	}

	if write {
		if isWithinAny(realPath, resolveAll(p.ReadonlyPaths)) {
			return reacherr.New(reacherr.CodePolicyPathDenied, "write denied by readonly_paths: "+realPath)
		}
		if len(p.WritablePaths) > 0 && !isWithinAny(realPath, resolveAll(p.WritablePaths)) {
			return reacherr.New(reacherr.CodePolicyPathDenied, "write outside writable_paths: "+realPath)
		}
	}
	return nil
}

func resolveAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		real, err := filepath.EvalSymlinks(p)
		if err != nil {
			real = filepath.Clean(p)
		}
		out = append(out, real)
	}
	return out
}

func pathWithinAny(path string, roots []string) bool {
	if len(roots) == 0 {
		return false
	}
	return isWithinAny(path, roots)
}

func isWithinAny(path string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)) {
			return true
		}
	}
	return false
}

// ParseCommandLine splits a shell command line into argv, recognizing
// single and double quotes (spec.md §4.3: "Quoted-argument parsing
// recognises single and double quotes").
func ParseCommandLine(line string) []string {
	var args []string
	var cur strings.Builder
	var quote rune
	inArg := false

	flush := func() {
		if inArg {
			args = append(args, cur.String())
			cur.Reset()
			inArg = false
		}
	}

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			flush()
		default:
			inArg = true
			cur.WriteRune(r)
		}
	}
	flush()
	return args
}

// CheckCommandAccess enforces allowed_commands against the resolved
// basename of argv[0].
func CheckCommandAccess(p Policy, argv []string) error {
	if len(argv) == 0 {
		return reacherr.New(reacherr.CodePolicyCommandDenied, "empty command")
	}
	base := filepath.Base(argv[0])
	for _, allowed := range p.AllowedCommands {
		if allowed == base {
			return nil
		}
	}
	return reacherr.New(reacherr.CodePolicyCommandDenied, "command not in allowed_commands: "+base)
}

// Resolver resolves a hostname to its IP addresses. Exists so tests
// can substitute a fake resolver without touching the network.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

var defaultResolver Resolver = net.DefaultResolver

// CheckEndpointAccess enforces allowed_endpoints and the SSRF check
// for a single outbound request URL (spec.md §4.3 "allowed_endpoints").
// Call it again for every redirect hop with the hop's Location URL.
func CheckEndpointAccess(ctx context.Context, p Policy, rawURL string, resolver Resolver) error {
	if resolver == nil {
		resolver = defaultResolver
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return reacherr.Wrap(reacherr.CodePolicyEndpointDenied, "invalid URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return reacherr.New(reacherr.CodePolicyEndpointDenied, "unsupported scheme: "+u.Scheme)
	}

	host := u.Hostname()
	if !hostAllowed(host, p.AllowedEndpoints) {
		return reacherr.New(reacherr.CodePolicyEndpointDenied, "host not in allowed_endpoints: "+host)
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return reacherr.Wrap(reacherr.CodePolicyEndpointDenied, "dns resolution failed", err)
	}
	for _, a := range addrs {
		if isDisallowedAddr(a.IP) {
			return reacherr.New(reacherr.CodeSSRF, "resolved address is private/loopback/reserved: "+a.IP.String())
		}
	}
	return nil
}

func hostAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, host) {
			return true
		}
		if strings.HasPrefix(a, "*.") && strings.HasSuffix(strings.ToLower(host), strings.ToLower(a[1:])) {
			return true
		}
	}
	return false
}

func isDisallowedAddr(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}
