// Package bpath canonicalizes slash-separated kernel paths. It is referenced
// by fd.Cwd_t.Canonicalpath in the teacher but its source was not part of
// the retrieved subset; this implementation follows that call site's
// contract (absolute path in, "." and ".." resolved, no trailing slash
// except for the root itself).
package bpath

import "ustr"

// Canonicalize resolves "." and ".." components out of an absolute path.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	if !p.IsAbsolute() {
		panic("bpath: not absolute")
	}
	var comps []ustr.Ustr
	start := 1
	for i := 1; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			c := p[start:i]
			start = i + 1
			if len(c) == 0 || c.Isdot() {
				continue
			}
			if c.Isdotdot() {
				if len(comps) > 0 {
					comps = comps[:len(comps)-1]
				}
				continue
			}
			comps = append(comps, c)
		}
	}
	if len(comps) == 0 {
		return ustr.MkUstrRoot()
	}
	ret := ustr.Ustr{'/'}
	for i, c := range comps {
		if i > 0 {
			ret = append(ret, '/')
		}
		ret = append(ret, c...)
	}
	return ret
}
