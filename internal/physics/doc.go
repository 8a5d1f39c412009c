// Package physics implements the spring-bone simulation kernel.
//
// A rig is simulated as an [Element]: views onto the shared bone, collider
// and length-limit buffers plus a snapshot of the rig's [Params]. Bones are
// processed in depth order so a child always sees its simulated parent's
// pose from the current frame. Per bone the kernel
//
//   - propagates the pose from the parent (simulated or cached external),
//   - integrates a damped spring on the tip with Verlet steps,
//   - applies length limits, ground and shape collisions, angle limits,
//   - converts the tip back into a local rotation.
//
// An Element only writes to its own ranges, so elements of different rigs
// can run on separate goroutines.
package physics
