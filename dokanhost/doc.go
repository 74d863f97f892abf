// Package dokanhost serves dokan.Operations through the
// native Dokan library, dokan2.dll.
//
// The library is loaded from the system directory on the
// first mount, after its Authenticode signature has been
// verified. Callbacks are dispatched on the threads of the
// library, and every one of them is forwarded to the
// operations of the volume it was issued for.
package dokanhost
