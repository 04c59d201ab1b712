package resolver

func SystemFlusher() CacheFlusher {
	return commandFlusher{name: "ipconfig", args: []string{"/flushdns"}}
}
