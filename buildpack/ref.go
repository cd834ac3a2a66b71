package buildpack

import (
	"os"
	"regexp"
	"strings"
)

type Kind int

const (
	KindLocal Kind = iota
	KindTarball
	KindGit
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindTarball:
		return "tarball"
	case KindGit:
		return "git"
	}
	return "unknown"
}

var tarballURL = regexp.MustCompile(`^https?://.*\.(tgz|tar\.gz)($|\?)`)

// Ref is a parsed buildpack reference.
type Ref struct {
	Kind    Kind
	URL     string
	Treeish string
}

// ParseRef classifies ref. An existing directory is local; an http(s) URL
// ending in a gzipped tar extension is a tarball; anything else is a git URL
// with an optional "#<treeish>" suffix.
func ParseRef(ref string) Ref {
	if info, err := os.Stat(ref); err == nil && info.IsDir() {
		return Ref{Kind: KindLocal, URL: ref}
	}
	if tarballURL.MatchString(ref) {
		return Ref{Kind: KindTarball, URL: ref}
	}
	url, treeish, _ := strings.Cut(ref, "#")
	return Ref{Kind: KindGit, URL: url, Treeish: treeish}
}
