// Package farm stores the farms a grower's devices are grouped under.
//
// Every operation is scoped by owner id: a farm owned by someone else is
// indistinguishable from one that does not exist. A farm that still has
// devices cannot be deleted.
package farm
