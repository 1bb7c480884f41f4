// Package bundle moves CAS objects between stores as a deterministic tar
// archive: one blocks/<cid> entry per object plus an index.json naming them.
package bundle

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/covenants/cidutil"
	"xdao.co/covenants/storage"
)

const FormatVersion = 1

const (
	indexName   = "index.json"
	blockPrefix = "blocks/"
)

// Index is the bundle's table of contents. Labels map caller-chosen names to
// objects in the bundle.
type Index struct {
	Version   int               `json:"version"`
	CIDCodec  string            `json:"cidCodec"`
	Multihash string            `json:"multihash"`
	Blocks    []Block           `json:"blocks"`
	Labels    map[string]string `json:"labels"`
}

type Block struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

// Export writes every labelled object of cas to w. Output bytes depend only
// on the labels and object contents.
func Export(w io.Writer, cas storage.CAS, labels map[string]cid.Cid) error {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}
	uniq := map[string]cid.Cid{}
	idx := Index{Version: FormatVersion, CIDCodec: "raw", Multihash: "sha2-256", Labels: map[string]string{}}
	for name, id := range labels {
		if name == "" {
			return errors.New("bundle: empty label")
		}
		if !id.Defined() {
			return fmt.Errorf("bundle: label %q: %w", name, storage.ErrInvalidCID)
		}
		uniq[id.String()] = id
		idx.Labels[name] = id.String()
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	for _, s := range names {
		id := uniq[s]
		b, err := cas.Get(id)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: %s: %w", s, err)
		}
		if !cidutil.Matches(id, b) {
			_ = tw.Close()
			return storage.ErrCIDMismatch
		}
		if err := writeEntry(tw, blockPrefix+s, b); err != nil {
			_ = tw.Close()
			return err
		}
		idx.Blocks = append(idx.Blocks, Block{CID: s, Size: len(b)})
	}

	// encoding/json sorts map keys.
	b, err := json.Marshal(idx)
	if err != nil {
		_ = tw.Close()
		return err
	}
	if err := writeEntry(tw, indexName, append(b, '\n')); err != nil {
		_ = tw.Close()
		return err
	}
	return tw.Close()
}

// Import verifies each block of the bundle in r against its name, stores it
// in cas and returns the bundle's labels. Unknown entries, duplicate blocks
// and labels pointing outside the bundle are errors.
func Import(r io.Reader, cas storage.CAS) (map[string]cid.Cid, error) {
	if cas == nil {
		return nil, errors.New("bundle: nil CAS")
	}
	tr := tar.NewReader(r)
	seen := map[string]bool{}
	var idx *Index
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		name := cleanPath(h.Name)
		if name == "" || h.Typeflag != tar.TypeReg {
			return nil, fmt.Errorf("bundle: unexpected entry %q", h.Name)
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}

		if name == indexName {
			if idx != nil {
				return nil, errors.New("bundle: duplicate index")
			}
			idx = new(Index)
			if err := json.Unmarshal(payload, idx); err != nil {
				return nil, fmt.Errorf("bundle: index: %w", err)
			}
			continue
		}
		if !strings.HasPrefix(name, blockPrefix) {
			return nil, fmt.Errorf("bundle: unknown entry %s", name)
		}
		id, err := cidutil.Parse(strings.TrimPrefix(name, blockPrefix))
		if err != nil {
			return nil, storage.ErrInvalidCID
		}
		if !cidutil.Matches(id, payload) {
			return nil, storage.ErrCIDMismatch
		}
		if seen[id.String()] {
			return nil, fmt.Errorf("bundle: duplicate block %s", id)
		}
		seen[id.String()] = true
		if _, err := cas.Put(payload); err != nil {
			return nil, fmt.Errorf("bundle: store %s: %w", id, err)
		}
	}

	if idx == nil {
		return nil, errors.New("bundle: missing index.json")
	}
	if idx.Version != FormatVersion {
		return nil, fmt.Errorf("bundle: unsupported version %d", idx.Version)
	}
	labels := make(map[string]cid.Cid, len(idx.Labels))
	for name, s := range idx.Labels {
		id, err := cidutil.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("bundle: label %q: %w", name, storage.ErrInvalidCID)
		}
		if !seen[id.String()] {
			return nil, fmt.Errorf("bundle: label %q points at %s which the bundle does not carry", name, s)
		}
		labels[name] = id
	}
	return labels, nil
}

var epoch = time.Unix(0, 0).UTC()

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	if err := tw.WriteHeader(&tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatPAX,
	}); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

// cleanPath normalises a tar entry name and returns "" for anything that
// could escape the archive root.
func cleanPath(name string) string {
	name = strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"), "./")
	if name == "" || strings.HasPrefix(name, "/") {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
