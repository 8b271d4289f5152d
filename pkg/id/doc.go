// Package id issues the 128-bit, lexicographically sortable identifiers that
// name recorded sessions.
//
// An ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence], so
// byte order is creation order. The Generator pins to the last seen
// millisecond when the wall clock regresses.
//
//	g := id.NewGenerator()
//	sid := g.Next()
//	fmt.Println(sid)            // 32 hex chars
//	back, _ := id.Parse(sid.String())
package id
