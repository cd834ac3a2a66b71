package img

import (
	"context"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/daemon"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Source is a place an image can be read from.
type Source interface {
	Ref() name.Reference
	Image() (v1.Image, error)
}

// Store is a Source that can also be written to.
type Store interface {
	Source
	Write(image v1.Image) error
}

// NewRegistry returns a read-only Source for ref, authenticated with the
// default keychain.
func NewRegistry(ctx context.Context, ref string) (Source, error) {
	r, err := name.ParseReference(ref, name.WeakValidation)
	if err != nil {
		return nil, err
	}
	return &registrySource{ctx: ctx, ref: r}, nil
}

type registrySource struct {
	ctx   context.Context
	ref   name.Reference
	cache v1.Image
}

func (r *registrySource) Ref() name.Reference {
	return r.ref
}

func (r *registrySource) Image() (v1.Image, error) {
	if r.cache != nil {
		return r.cache, nil
	}
	image, err := remote.Image(r.ref,
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
		remote.WithContext(r.ctx),
	)
	if err != nil {
		return nil, err
	}
	r.cache = image
	return image, nil
}

func NewDaemon(ctx context.Context, tag string) (Store, error) {
	t, err := name.NewTag(tag, name.WeakValidation)
	if err != nil {
		return nil, err
	}
	return &daemonStore{ctx: ctx, tag: t}, nil
}

type daemonStore struct {
	ctx context.Context
	tag name.Tag
}

func (d *daemonStore) Ref() name.Reference {
	return d.tag
}

func (d *daemonStore) Image() (v1.Image, error) {
	return daemon.Image(d.tag, daemon.WithContext(d.ctx))
}

func (d *daemonStore) Write(image v1.Image) error {
	_, err := daemon.Write(d.tag, image, daemon.WithContext(d.ctx))
	return err
}
