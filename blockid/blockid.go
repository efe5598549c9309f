package blockid

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// String returns a CIDv1 string using the "raw" multicodec and a
// sha2-256 multihash. Digit blocks and manifests are addressed this
// way throughout the repo.
func String(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// For returns a CIDv1 (raw + sha2-256) derived from data.
func For(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
