package resolver

func SystemFlusher() CacheFlusher {
	return commandFlusher{name: "dscacheutil", args: []string{"-flushcache"}}
}
