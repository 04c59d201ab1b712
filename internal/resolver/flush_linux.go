package resolver

// SystemFlusher flushes systemd-resolved, which sits behind the 127.0.0.53
// stub most distributions put in resolv.conf.
func SystemFlusher() CacheFlusher {
	return commandFlusher{name: "resolvectl", args: []string{"flush-caches"}}
}
