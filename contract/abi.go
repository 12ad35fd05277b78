package contract

const stateConnectorABI = `[
  {"type":"function","name":"getLatestIndex","stateMutability":"view",
   "inputs":[{"name":"chainId","type":"uint32"}],
   "outputs":[{"name":"genesisLedger","type":"uint64"},{"name":"finalisedClaimPeriodIndex","type":"uint64"},
              {"name":"claimPeriodLength","type":"uint64"},{"name":"finalisedLedgerIndex","type":"uint64"},
              {"name":"finalisedTimestamp","type":"uint256"},{"name":"timeDiffAvg","type":"uint256"}]},
  {"type":"function","name":"getUNL","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"getClaimPeriodIndexFinality","stateMutability":"view",
   "inputs":[{"name":"chainId","type":"uint32"},{"name":"claimPeriodIndex","type":"uint64"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getClaimPeriodHash","stateMutability":"view",
   "inputs":[{"name":"chainId","type":"uint32"},{"name":"claimPeriodIndex","type":"uint64"}],
   "outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"getPaymentFinality","stateMutability":"view",
   "inputs":[{"name":"chainId","type":"uint32"},{"name":"txId","type":"bytes32"},
             {"name":"ledger","type":"uint64"},{"name":"paymentHash","type":"bytes32"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"initialiseChains","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"registerClaimPeriod","stateMutability":"nonpayable",
   "inputs":[{"name":"chainId","type":"uint32"},{"name":"ledger","type":"uint64"},
             {"name":"claimPeriodIndex","type":"uint64"},{"name":"claimPeriodHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"registerPartialClaimPeriod","stateMutability":"nonpayable",
   "inputs":[{"name":"chainId","type":"uint32"},{"name":"ledger","type":"uint64"},
             {"name":"claimPeriodIndex","type":"uint64"},{"name":"skipIndex","type":"uint64"},
             {"name":"partialHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"commitClaimPeriod","stateMutability":"nonpayable",
   "inputs":[{"name":"chainId","type":"uint32"},{"name":"ledger","type":"uint64"},
             {"name":"claimPeriodIndex","type":"uint64"},{"name":"claimPeriodHash","type":"bytes32"},
             {"name":"commitHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"revealClaimPeriod","stateMutability":"nonpayable",
   "inputs":[{"name":"chainId","type":"uint32"},{"name":"ledger","type":"uint64"},
             {"name":"claimPeriodIndex","type":"uint64"},{"name":"claimPeriodHash","type":"bytes32"},
             {"name":"chainTipHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"provePaymentFinality","stateMutability":"nonpayable",
   "inputs":[{"name":"chainId","type":"uint32"},{"name":"claimPeriodIndex","type":"uint64"},
             {"name":"ledger","type":"uint64"},{"name":"txId","type":"bytes32"},
             {"name":"paymentHash","type":"bytes32"},{"name":"proof","type":"bytes32[]"}],"outputs":[]},
  {"type":"function","name":"disprovePaymentFinality","stateMutability":"nonpayable",
   "inputs":[{"name":"chainId","type":"uint32"},{"name":"claimPeriodIndex","type":"uint64"},
             {"name":"ledger","type":"uint64"},{"name":"txId","type":"bytes32"},
             {"name":"paymentHash","type":"bytes32"},{"name":"proof","type":"bytes32[]"}],"outputs":[]}
]`
