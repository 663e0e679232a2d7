//go:build unix

package permission

import "golang.org/x/sys/unix"

func defaultAccess(path string) error {
	return unix.Access(path, unix.R_OK|unix.W_OK)
}
