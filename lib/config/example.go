package config

// Example is printed by `nbx example_config`. Every value in it is the
// default.
const Example = `[Domain]

# Cells is the number of cells along each dimension of the coarsest level.
# Variables which take a vector can be given one value, which is used for every
# dimension, or three.
Cells = 16 16 16

# ProbLo and ProbHi give the physical corners of the domain.
ProbLo = 0 0 0
ProbHi = 1 1 1

# Periodic gives the boundary condition along each dimension.
Periodic = true true true

# MaxGridSize is the largest grid the domain is split into. Grids are dealt out
# to ranks round-robin.
MaxGridSize = 8

# TileSize is the size of the tiles grids are split into. Tiles are the unit
# particles are stored, tagged, and listed in.
TileSize = 4

# RefinedRegion, if set, adds a finer level covering a box of coarse cells,
# written as "lo0 lo1 lo2 hi0 hi1 hi2". RefRatio is its refinement ratio.
# RefinedRegion = 4 4 4 11 11 11
RefRatio = 2

[Neighbors]

# Radius is the number of cells around each particle's cell whose tiles
# receive a neighbor copy of it.
Radius = 1

# Threads is the number of goroutines used to tag and pack particles. -1 means
# one per CPU.
Threads = 1

# Images is either "keep" or "dedup". With "dedup", a tile that is reached
# through several periodic images receives only the first copy.
Images = keep

# UseMask precomputes a cell-to-tile lookup around each grid instead of
# intersecting boxes for every particle.
UseMask = true

# Debug turns on consistency checks that cost an extra pass over the data.
Debug = false

# Cutoff is the physical pair distance used to build neighbor lists. It cannot
# be larger than Radius cells on the finest level.
Cutoff = 0.05

# SortLists orders particles by cell before building lists.
SortLists = false

# ReuseSizes skips the message size negotiation on steps where particles did
# not change tiles.
ReuseSizes = true

[Run]

# Transport is one of "local", "tcp", or "mpi". The local transport runs Ranks
# ranks as goroutines in one process. The tcp transport runs this process as
# rank Rank and connects to every address in the comma-separated Addresses.
Transport = local
Ranks = 2
# Rank = 0
# Addresses = localhost:7001, localhost:7002

# InitialConditions is one of "random", "gadget2", "text", "gotetra", or
# "checkpoint". Random initial conditions place ParticlesPerCell particles in
# every cell with speeds up to MaxSpeed. The other formats read every InputFiles
# line, e.g.
# InputFiles = path/to/snapdir_100/snapshot_100.0
# InputFiles = path/to/snapdir_100/snapshot_100.1
InitialConditions = random
ParticlesPerCell = 1
Seed = 1
MaxSpeed = 0.1

# Steps is the number of time steps. Every step fills neighbor buffers, builds
# lists, applies a softened pairwise repulsion with the given Strength and
# Softening, and moves particles by Dt. Dt and Softening must be positive.
Steps = 10
Dt = 0.001
Strength = 0.0001
Softening = 0.001

# RedistributeEvery is the number of steps between moving particles to the
# tiles that own them. Buffers are refilled from scratch on those steps and
# updated in place on the others, so particles should not move more than
# Radius cells minus Cutoff between redistributions.
RedistributeEvery = 1

# PrintSteps is a sequence of steps whose neighbor lists are written to
# ListFile. Sequences are written like "0..100 - 63": ranges of steps joined by
# "+" and "-". It is empty by default. ListFile is a file format with the
# variables "step" and "rank".
# PrintSteps = 0..10
ListFile = nlist_{%04d,step}.{%d,rank}.txt

# PlotFile, if set, is a PNG histogram of neighbor counts on the last step.
# MetricsFile, if set, is where exchange metrics are written at the end of the
# run. PotentialEps, if positive, is the softening of a tree potential
# computed on rank 0 at the end of the run.
# PlotFile = neighbors.png
# MetricsFile = nbx.prom
# PotentialEps = 0.01

# LogLevel is one of debug, info, warn, or error.
LogLevel = info

# CheckpointFile, if set, is where every rank writes its particles at the end of
# the run. It is a file format with the variables "step" and "rank".
# Checkpoints can be read back with InitialConditions = checkpoint. Positions
# are stored to an accuracy of CheckpointDelta and velocities and accelerations
# to CheckpointRealDelta.
# CheckpointFile = checkpoint.{%d,rank}.nbx
CheckpointDelta = 1e-06
CheckpointRealDelta = 1e-06
`
