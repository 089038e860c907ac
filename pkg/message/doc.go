// Package message defines the unit of delivery shared by every remq component:
// the Message record, its header framing, channel/pattern rules, prune
// policies, and the error sentinels surfaced by stores and live transports.
//
// # Framing
//
// On the live transport and in diagnostic output a message is framed as
//
//	<channel>@<id>\n<body>
//
// The header never contains a newline, so the first '\n' always terminates it.
//
// # Patterns
//
// Patterns are globs over channel names: '*' matches any run of characters,
// '?' matches one character, and '[...]' matches a character class.
//
//	message.Match("events.*", "events.create") // true
//	message.Match("events.?", "events.ab")     // false
package message
