package deploy

import (
	"fmt"
	"strings"
	"time"

	"xdao.co/covenants/storage"
	"xdao.co/covenants/storage/grpccas"
	"xdao.co/covenants/storage/ipfs"
	"xdao.co/covenants/storage/localfs"
)

// Mirror spec forms accepted by OpenMirror.
const (
	mirrorIPFS = "ipfs"
	mirrorGRPC = "grpc://"
)

// OpenMirror opens one record-store replica from its spec:
//
//	ipfs              the default Kubo repository
//	ipfs:<repo>       the Kubo repository at <repo>
//	grpc://host:port  a remote archive served by covenant-oracled
//	<path>            a local directory
//
// The returned close function may be nil.
func OpenMirror(spec string) (storage.Replica, func() error, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "":
		return storage.Replica{}, nil, fmt.Errorf("deploy: empty mirror spec")
	case spec == mirrorIPFS:
		return storage.Replica{Name: spec, CAS: ipfs.New(ipfs.Options{})}, nil, nil
	case strings.HasPrefix(spec, mirrorIPFS+":"):
		repo := strings.TrimPrefix(spec, mirrorIPFS+":")
		return storage.Replica{Name: spec, CAS: ipfs.New(ipfs.Options{Repo: repo})}, nil, nil
	case strings.HasPrefix(spec, mirrorGRPC):
		target := strings.TrimPrefix(spec, mirrorGRPC)
		if target == "" {
			return storage.Replica{}, nil, fmt.Errorf("deploy: mirror %q has no target", spec)
		}
		c, err := grpccas.Dial(target, grpccas.DialOptions{Timeout: 5 * time.Second})
		if err != nil {
			return storage.Replica{}, nil, fmt.Errorf("deploy: mirror %s: %w", spec, err)
		}
		c.Timeout = 10 * time.Second
		return storage.Replica{Name: spec, CAS: c}, c.Close, nil
	default:
		fs, err := localfs.New(spec)
		if err != nil {
			return storage.Replica{}, nil, err
		}
		return storage.Replica{Name: spec, CAS: fs}, nil, nil
	}
}
