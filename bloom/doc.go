/*
Package bloom is a probabilistic prefilter for registry lookups.

A filter lives in a single byte region:

	+----------------------+  32B header (magic, version, params)
	| HeaderV1             |
	+----------------------+  bitset bytes
	| bitset               |
	+----------------------+

A filter answering "definitely not present" is always right. "Maybe
present" can be wrong, so a hit must be confirmed against the page it points
at. The filter is never a substitute for the cross-page name scan the
registry performs before it writes; it only lets readers skip decoding pages
that can not hold what they are looking for.

Bit positions come from double hashing one sha256 digest of a domain byte
and the element. Bit 0 is the least significant bit of byte 0.

Functions carry a V1 suffix because they assume this exact header layout,
bit numbering and hashing. An incompatible change is introduced as V2 beside
them, never in place, so regions that have been written keep decoding.
*/
package bloom
