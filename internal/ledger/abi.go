package ledger

// contractABI is the subset of the HydrogenCredit contract the backend calls.
// Writes are signed by the operator account, which holds the admin and
// certifier roles on the contract.
const contractABI = `[
  {"type":"function","name":"issueCredit","stateMutability":"nonpayable",
   "inputs":[{"name":"producer","type":"address"},{"name":"renewableSourceType","type":"string"},
             {"name":"hydrogenAmount","type":"uint256"},{"name":"metadataHash","type":"string"},
             {"name":"creditAmount","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"transferCredit","stateMutability":"nonpayable",
   "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},
             {"name":"creditId","type":"uint256"},{"name":"amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"retireCredit","stateMutability":"nonpayable",
   "inputs":[{"name":"holder","type":"address"},{"name":"creditId","type":"uint256"},
             {"name":"amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"grantRole","stateMutability":"nonpayable",
   "inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],
   "outputs":[]},
  {"type":"function","name":"hasRole","stateMutability":"view",
   "inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getCreditMetadata","stateMutability":"view",
   "inputs":[{"name":"creditId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"creditId","type":"uint256"},{"name":"producer","type":"address"},
     {"name":"renewableSourceType","type":"string"},{"name":"productionDate","type":"uint256"},
     {"name":"hydrogenAmount","type":"uint256"},{"name":"metadataHash","type":"string"},
     {"name":"isRetired","type":"bool"},{"name":"retirementDate","type":"uint256"},
     {"name":"retiredBy","type":"address"}]}]},
  {"type":"function","name":"verifyCredit","stateMutability":"view",
   "inputs":[{"name":"creditId","type":"uint256"},{"name":"metadataHash","type":"string"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getTotalCreditsIssued","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getProducerCredits","stateMutability":"view",
   "inputs":[{"name":"producer","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getConsumerCredits","stateMutability":"view",
   "inputs":[{"name":"consumer","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"event","name":"CreditIssued","anonymous":false,
   "inputs":[{"name":"creditId","type":"uint256","indexed":true},{"name":"producer","type":"address","indexed":true},
             {"name":"renewableSourceType","type":"string","indexed":false},
             {"name":"hydrogenAmount","type":"uint256","indexed":false},
             {"name":"metadataHash","type":"string","indexed":false},
             {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"CreditTransferred","anonymous":false,
   "inputs":[{"name":"creditId","type":"uint256","indexed":true},{"name":"from","type":"address","indexed":true},
             {"name":"to","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},
             {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"CreditRetired","anonymous":false,
   "inputs":[{"name":"creditId","type":"uint256","indexed":true},{"name":"retiredBy","type":"address","indexed":true},
             {"name":"amount","type":"uint256","indexed":false},{"name":"timestamp","type":"uint256","indexed":false}]}
]`
