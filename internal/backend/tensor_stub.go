//go:build !gomlx

package backend

// This build has no graph engine. Build with -tags=gomlx to enable the
// tensor backend.

// TensorBuilt reports whether this binary includes the tensor backend.
const TensorBuilt = false

// LoadTensor fails with a ModelLoadError naming the missing build tag.
func LoadTensor(opts TensorOptions) (Backend, Info, error) {
	return nil, Info{}, &ModelLoadError{
		Path:   opts.ModelPath,
		Reason: "tensor support not built (missing 'gomlx' build tag)",
	}
}
