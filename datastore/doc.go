/*
Package datastore persists the inputs and outputs of MRF relaxation as named
volumes.  Each name can hold three kinds of volume: responsibilities, priors and
an interaction structure.  Volumes are encoded with a small msgpack envelope that
records the kind, dims, encoding and element type, then compressed and
checksummed via dvid.SerializeData before being handed to a storage.Store.
*/
package datastore
