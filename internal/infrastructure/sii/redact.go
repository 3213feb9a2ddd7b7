package sii

import "regexp"

var (
	reTokenTag    = regexp.MustCompile(`(?i)(<TOKEN>)[^<]*(</TOKEN>)`)
	reTokenCookie = regexp.MustCompile(`(?i)(TOKEN=)[^;\s"]+`)
	reRSASK       = regexp.MustCompile(`(?s)(<RSASK>).*?(</RSASK>)`)
)

// Redact oculta tokens de sesión y llaves de CAF antes de loguear o archivar un payload.
func Redact(raw []byte) []byte {
	out := reTokenTag.ReplaceAll(raw, []byte("${1}***${2}"))
	out = reTokenCookie.ReplaceAll(out, []byte("${1}***"))
	return reRSASK.ReplaceAll(out, []byte("${1}***${2}"))
}
