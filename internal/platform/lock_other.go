//go:build !unix && !windows

package platform

func isLockErrno(error) bool {
	return false
}
