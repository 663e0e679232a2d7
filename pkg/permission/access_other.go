//go:build !unix

package permission

// Device node permissions only exist on unix systems.
var defaultAccess AccessFunc
