/*
Package blob implements the Block Manager's on-disk content-addressed
store: path derivation, atomic write, integrity-checked read, and
corruption quarantine.

Layout, rooted at a data directory:

	<data_dir>/<hex(h[0])>/<hex(h[1])>/<hex(h)>           canonical block
	<data_dir>/<hex(h[0])>/<hex(h[1])>/<hex(h)>.tmp       write-in-progress
	<data_dir>/<hex(h[0])>/<hex(h[1])>/<hex(h)>.corrupted quarantined

A two-byte fan-out (65536 intermediate directories) keeps any single
directory's entry count bounded.
*/
package blob
