//go:build !linux

package scandetect

// OpenRaw só é suportado no Linux
func OpenRaw(addr string) (Source, error) {
	return nil, ErrUnsupported
}
