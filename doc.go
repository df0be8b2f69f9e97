// Inject behavior into a compiled application by patching its modules on disk
//
// The host loads its modules from a managed directory before it runs any of
// its own code. This package rewrites two of them before that happens:
//
//   - The core module gets a call to an injector hook as the first
//     instruction of a type initializer, followed by a return.
//   - A second module is virtualized: sealed types, non-virtual methods and
//     private fields are opened up so they can be overridden at runtime.
//
// Every file is copied into a backup set before it is first changed, and a
// run over files that are already patched writes nothing.
//
// Limitations:
//   - Whatever the initializer did before is lost, only the hook runs.
//   - The hook is matched by name, so a different method with the same name
//     counts as installed.
//   - No locking. Nothing else may touch the files during a run.
package inject
