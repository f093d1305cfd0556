//go:build windows

package drives

import "golang.org/x/sys/windows"

// Detect returns the roots of all present logical drives (C:\, D:\, ...).
func Detect() []string {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return nil
	}
	var roots []string
	for i := 0; i < 26; i++ {
		if mask&(1<<i) != 0 {
			roots = append(roots, string(rune('A'+i))+`:\`)
		}
	}
	return roots
}
