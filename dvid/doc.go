/*
Package dvid provides types, constants, and functions that have no other dependencies
and can be used by all packages within the relaxation service.  This includes logging,
configuration maps, serialization with optional compression and checksums, and
simple voxel coordinate handling.
*/
package dvid
